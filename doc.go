// Package bretterlabs provisions short-lived VM lab sessions on a
// Kubernetes cluster.
//
// Each session boots a pre-registered disk image in a dedicated workload,
// publishes its SPICE console through a cluster-assigned port, and is
// fenced by an egress-only network policy. Admission control enforces one
// active lab per owner plus cluster-wide and per-owner concurrency limits,
// and an idle reaper reclaims sessions nobody is looking at.
//
// # Basic Usage
//
//	import "github.com/csufpsudocromis/bretter-labs"
//
//	ctx := context.Background()
//
//	st, err := bretterlabs.OpenStore("/var/lib/bretterlabs/state.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	mgr, err := bretterlabs.NewManager(restConfig, st,
//	    bretterlabs.WithExternalHost("labs.example.edu"),
//	    bretterlabs.WithRunnerImage("registry.example.edu/vm-runner:v12"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.StartReaper(); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.StopReaper()
//
//	inst, err := mgr.StartLab(ctx, "student42", templateID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(inst.ConsoleURL)
//
// Rejections carry a machine-readable reason; test with
// [IsAdmissionRejected] before treating an error as operational.
//
// # Image Ingestion
//
// Disk images reach the cluster's shared image volume through
// [Manager.IngestImage], which streams a staged local file into a
// short-lived helper workload in resumable, block-aligned chunks, then
// validates (and optionally converts) it with the runtime's image tooling.
package bretterlabs
