package credit

import "database/sql"

// worker serializes every call against db through a single goroutine,
// so a CollateralCall's read-then-write never races another caller's
// AdvanceMaturity or RenameParty.
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
