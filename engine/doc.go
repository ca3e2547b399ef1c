// Package engine wires the pipeline subsystems together and provides
// the application-level API: workflow registration, trigger ingestion,
// the durable transfer surface, and lifecycle control.
//
// The engine package exists to break an import cycle: the root flowrge
// package defines Entity and Config (imported by workflow, nonce, etc.)
// and therefore cannot import those packages back. Engine sits above
// all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	eng, err := engine.New(flowrge.DefaultConfig(), pgStore, redisQueue,
//	    rpcClient, authority,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Timeout(30*time.Second)),
//	)
//
// # Ingesting a trigger
//
//	run, err := eng.CreateRun(ctx, workflowID, payload)
//
// The run and its outbox record land in one transaction; the relay and
// executor take it from there once Start has been called.
package engine
