// Package mailgun implements a mail.Backend on top of the Mailgun HTTP API.
// Each Open creates a connection bound to one sending domain and API key.
package mailgun
