// Package mail defines the outbound email model and the backend contract used
// to deliver it: a Backend opens a Session scoped to one set of credentials,
// the Session sends messages and is closed on every exit path by Deliver.
// An SMTP relay backend built on gomail is included.
package mail
