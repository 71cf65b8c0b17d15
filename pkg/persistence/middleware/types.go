package middleware

import "github.com/aretw0/promptflow/pkg/ports"

// Middleware allows wrapping a JobStore to add behavior.
type Middleware func(ports.JobStore) ports.JobStore

// Chain applies mws to store so that the first middleware is outermost.
func Chain(store ports.JobStore, mws ...Middleware) ports.JobStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
