package plugin

// Initializer is implemented by plugins that need setup before their
// first Task call — opening a connection pool, warming a cache. The host
// calls Initialize exactly once, after loading the plugin and before any
// route/service/feature-set starts dispatching to it.
//
//	func (p *MyPlugin) Initialize() error {
//	    db, err := sql.Open("postgres", p.config.DSN)
//	    if err != nil {
//	        return err
//	    }
//	    p.db = db
//	    return nil
//	}
type Initializer interface {
	Initialize() error
}

// Shutdowner is implemented by plugins that hold resources needing an
// orderly close. The host calls Shutdown during the drain phase of
// spec §5's shutdown flow, after in-flight handlers finish and before
// the process exits.
type Shutdowner interface {
	Shutdown() error
}
