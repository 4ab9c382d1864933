// Package exec is the facade behind the gateway's three operations.
//
// An [Exec] ties together the capability catalog, the connection broker and
// the script executor:
//
//   - SearchTools ranks catalog definitions for a query.
//   - GetToolSchema returns one definition with its input schema.
//   - ExecuteCode runs a script with every configured service bound as a
//     global.
//
// RunTool invokes a single capability directly by "service:capability" ID,
// going through the same auditing and oversized-result handling as calls
// made from scripts.
//
// # Basic Usage
//
//	defs, _ := catalog.LoadDir(afero.NewOsFs(), "registry", logger)
//	cat, _ := catalog.New(defs, catalog.Options{Logger: logger})
//	reg, _ := backend.NewRegistry(descriptors...)
//	broker, _ := backend.NewBroker(backend.BrokerConfig{
//	    Registry: reg,
//	    Factory:  stdio.Factory(stdio.Options{Logger: logger}),
//	})
//	ws, _ := workspace.New("workspace")
//
//	executor, err := exec.New(exec.Options{
//	    Catalog:   cat,
//	    Broker:    broker,
//	    Engine:    jsengine.New(jsengine.Config{Logger: logger}),
//	    Workspace: ws,
//	})
//	defer executor.Shutdown(context.Background())
//
//	res, err := executor.ExecuteCode(ctx, code.ExecuteParams{
//	    Code: `return await context7["query-docs"]({libraryId: "/vercel/next.js"})`,
//	})
package exec
