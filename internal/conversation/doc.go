// Package conversation drives the per-recording chat: tag selection,
// participant selection and the summary choice.
//
// Inbound events are applied to the pending item by Engine.HandleEvent. Each
// state change is committed before any message goes out, and each stage keeps
// the message id of its live prompt so that presses on superseded keyboards
// and texts written before the prompt are ignored.
package conversation
