// Package asynctask turns cancellable asynchronous work into an observable state machine.
//
// A State moves from Uninitialized to Loading when work is dispatched and ends at exactly
// one of Succeeded or Failed. Cancellation is carried by the context: a run whose context
// is done before dispatch emits nothing, and a run whose context is done when the work
// returns emits only its Loading state. Cancellation is reported to the caller as a
// Cancelled Outcome, never as a Failed state.
//
// Steps compose with Then and Delay; every link checks the same context, so cancelling it
// stops the chain at the next link.
//
//	step := asynctask.Then(
//	    asynctask.Delay(500*time.Millisecond, asynctask.From(fetchDoc)),
//	    func(ctx context.Context, doc *Doc) (string, error) { return doc.Title, nil },
//	)
//
//	asynctask.Execute(ctx, prev, step, func(s asynctask.State[string]) {
//	    render(s)
//	})
package asynctask
