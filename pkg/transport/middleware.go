package transport

// Middleware decorates an AnalysisCreator.
type Middleware func(AnalysisCreator) AnalysisCreator

// Chain composes middlewares so that the first one listed sees the request
// first: Chain(a, b)(h) behaves as a(b(h)).
func Chain(middlewares ...Middleware) Middleware {
	return func(h AnalysisCreator) AnalysisCreator {
		for i := range middlewares {
			h = middlewares[len(middlewares)-1-i](h)
		}
		return h
	}
}
