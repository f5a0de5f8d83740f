// Package supervisor owns the single render slot.
//
// A Supervisor starts the render job as a child process, maps the child's
// output onto a phase-weighted progress value, and records how the job ended.
// State changes go through Machine, which enforces the allowed transitions:
//
//	idle|done|error --Begin--> rendering --Exit/Abort--> done|error
//
// Status never blocks on the job. Cancel and the per-job deadline kill the
// child's whole process group so bundler and renderer grandchildren go too.
package supervisor
