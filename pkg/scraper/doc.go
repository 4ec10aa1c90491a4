// Package scraper is the operator facade over a follower collection.
//
// A Service ties the session coordinator, the follower store, the filter
// engine and the remote follower actions together behind the operations an
// operator surface calls:
//
//   - StartCollection / StopCollection run and cancel the single session
//   - ProgressCount reports the stored record count while a session runs
//   - ListFiltered classifies the stored records against a settings snapshot
//   - RemoveRecord removes or blocks a follower remotely, then deletes the row
//   - ExportAll writes every record as CSV
//
// Every operation is scoped to one subject account. It is the account the
// last session ran for, or the one set with UseSubject, or else the account
// the browser is logged in as.
//
// Errors are returned to the caller. A store I/O error is additionally passed
// to the fatal handler, since the process cannot continue without its store.
//
// Usage:
//
//	svc := scraper.New(coordinator, st,
//	    scraper.WithActions(actions),
//	    scraper.WithAccountResolver(ctrl.DetectAccount),
//	    scraper.WithFatalHandler(func(err error) { log.WithError(err).Fatal("Store failed") }),
//	)
//	if err := svc.StartCollection(ctx, ""); err != nil {
//	    return err
//	}
package scraper
