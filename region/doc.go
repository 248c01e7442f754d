// Package region implements protected-region control flow for the VM: the
// per-frame environment stack of scope markers, the handler stack of active
// try regions, the deferred completion slot and the Controller that moves
// all three through region entry and exit, exception dispatch, abrupt
// return/break/continue and the end of finally bodies.
//
// The Controller only computes stack effects and control transfers. The
// dispatch loop in package vm performs the returned Target.
package region
