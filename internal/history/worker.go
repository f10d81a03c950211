package history

import "database/sql"

// worker serializes every call against db through a single goroutine,
// the same single-writer discipline gurre-prime-fix-md-go's
// MarketDataDb gets for free from sqlite3's own locking — here made
// explicit since history.Store additionally interleaves reads that
// must not race a RenameTicker/RenameUser rewrite.
type worker struct {
	db   *sql.DB
	reqs chan func(*sql.DB) error
	done chan struct{}
}

func startWorker(db *sql.DB) *worker {
	w := &worker{
		db:   db,
		reqs: make(chan func(*sql.DB) error),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	for fn := range w.reqs {
		fn(w.db)
	}
	close(w.done)
}

// do submits fn to the worker and blocks until it has run, returning
// its error.
func (w *worker) do(fn func(*sql.DB) error) error {
	result := make(chan error, 1)
	w.reqs <- func(db *sql.DB) error {
		err := fn(db)
		result <- err
		return err
	}
	return <-result
}

func (w *worker) stop() {
	close(w.reqs)
	<-w.done
}
