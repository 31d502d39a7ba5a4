package core

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Container and volume names inside a VM workload.
const (
	runnerContainerName  = "vm-runner"
	prepareContainerName = "prepare-disk"
	imagesVolumeName     = "images"
	scratchVolumeName    = "data"
	embedVolumeName      = "spice-embed"
	kvmVolumeName        = "kvm"
)

// prepareImage is the image used by the scratch-copy init step. It only
// needs a shell and cp.
const prepareImage = "busybox:1.36"

// Mount points shared between the init step and the runner.
const (
	imagesMountPath  = "/images"
	scratchMountPath = "/data"
	embedMountPath   = "/usr/share/spice-html5/spice-embed.html"
	embedPageFile    = "spice-embed.html"
)

// WorkloadName derives the workload name for an instance as a pure function
// of (owner, instance id). The derivation is deterministic so the external
// workload can be rediscovered statelessly, without an index mapping records
// to workloads.
func WorkloadName(owner, instanceID string) string {
	return "vm-" + sanitizeName(owner) + "-" + shortID(instanceID)
}

// ServiceName derives the console service name for an instance.
func ServiceName(instanceID string) string {
	return "svc-" + shortID(instanceID)
}

// shortID returns the first 8 characters of id. Instance IDs are UUIDs, so
// the prefix keeps workload names within label length limits while staying
// unique enough alongside the owner component.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// sanitizeName lowercases s and replaces every character that is not valid
// in a DNS-1123 name with '-', trimming leading and trailing dashes.
// Usernames come from the identity layer and may contain characters the
// control plane rejects in object names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// buildWorkload assembles the declarative pod spec for one VM instance.
// The init step copies the disk image from shared storage into an emptyDir
// scratch volume so the VM never writes to the golden image; the runner then
// boots against the scratch copy, parameterized entirely through its
// environment.
func buildWorkload(cfg Config, tpl Template, img Image, owner, instanceID string) *corev1.Pod {
	name := WorkloadName(owner, instanceID)
	fileName := path.Base(img.Filename)
	scratchDisk := scratchMountPath + "/" + fileName
	params := ResolveDiskParams(path.Ext(fileName), tpl.OSType)

	// The limit carries headroom above the guest RAM so host-side
	// hypervisor overhead does not trip the container memory budget.
	limitMB := tpl.RAMMB + cfg.MemoryHeadroomMB
	resources := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(strconv.Itoa(tpl.CPUCores)),
			corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", tpl.RAMMB)),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(strconv.Itoa(tpl.CPUCores)),
			corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", limitMB)),
		},
	}

	env := []corev1.EnvVar{
		{Name: "CPU_CORES", Value: strconv.Itoa(tpl.CPUCores)},
		{Name: "RAM_MB", Value: strconv.Itoa(tpl.RAMMB)},
		{Name: "OS_TYPE", Value: strings.ToLower(tpl.OSType)},
		{Name: "DRIVE_IF", Value: params.DriveInterface},
		{Name: "VGA_TYPE", Value: params.VGAType},
		{Name: "MACHINE_TYPE", Value: params.MachineType},
		{Name: "EFI_ENABLED", Value: strconv.FormatBool(params.EFIEnabled)},
	}
	if params.DiskFormat != "" {
		env = append(env, corev1.EnvVar{Name: "DISK_FORMAT", Value: params.DiskFormat})
	}

	volumes := []corev1.Volume{
		{
			Name: imagesVolumeName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: cfg.ImagePVC,
				},
			},
		},
		{
			Name: scratchVolumeName,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		},
	}
	mounts := []corev1.VolumeMount{
		{Name: imagesVolumeName, MountPath: imagesMountPath, ReadOnly: true},
		{Name: scratchVolumeName, MountPath: scratchMountPath},
	}

	if cfg.EmbedConfigMap != "" {
		volumes = append(volumes, corev1.Volume{
			Name: embedVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: cfg.EmbedConfigMap},
					Items:                []corev1.KeyToPath{{Key: embedPageFile, Path: embedPageFile}},
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      embedVolumeName,
			MountPath: embedMountPath,
			SubPath:   embedPageFile,
			ReadOnly:  true,
		})
	}

	if cfg.KVMPassthrough {
		volumes = append(volumes, corev1.Volume{
			Name: kvmVolumeName,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{
					Path: "/dev/kvm",
					Type: ptrTo(corev1.HostPathCharDev),
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: kvmVolumeName, MountPath: "/dev/kvm"})
	}

	runner := corev1.Container{
		Name:            runnerContainerName,
		Image:           cfg.RunnerImage,
		Args:            []string{"--disk", scratchDisk},
		Env:             env,
		Resources:       resources,
		VolumeMounts:    mounts,
		ImagePullPolicy: corev1.PullIfNotPresent,
		SecurityContext: &corev1.SecurityContext{
			Privileged: ptrTo(cfg.KVMPassthrough),
		},
	}

	prepare := corev1.Container{
		Name:    prepareContainerName,
		Image:   prepareImage,
		Command: []string{"/bin/sh", "-c", fmt.Sprintf("cp %s/%s %s && sync", imagesMountPath, fileName, scratchDisk)},
		VolumeMounts: []corev1.VolumeMount{
			{Name: imagesVolumeName, MountPath: imagesMountPath, ReadOnly: true},
			{Name: scratchVolumeName, MountPath: scratchMountPath},
		},
	}

	spec := corev1.PodSpec{
		InitContainers: []corev1.Container{prepare},
		Containers:     []corev1.Container{runner},
		RestartPolicy:  corev1.RestartPolicyNever,
		Volumes:        volumes,
		HostNetwork:    tpl.NetworkMode == NetworkModeHost,
	}
	if cfg.ImagePullSecret != "" {
		spec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: cfg.ImagePullSecret}}
	}
	if cfg.RuntimeClass != "" {
		spec.RuntimeClassName = ptrTo(cfg.RuntimeClass)
	}
	if cfg.NodeSelectorKey != "" && cfg.NodeSelectorValue != "" {
		spec.NodeSelector = map[string]string{cfg.NodeSelectorKey: cfg.NodeSelectorValue}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app":      name,
				"owner":    sanitizeName(owner),
				"instance": instanceID,
			},
		},
		Spec: spec,
	}
}

// ptrTo returns a pointer to v, for the pointer-typed optional fields in the
// workload spec.
func ptrTo[T any](v T) *T {
	return &v
}
