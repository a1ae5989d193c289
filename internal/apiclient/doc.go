// Package apiclient is the HTTP client for the stagequeue daemon.
//
// Besides one method per API route, Client implements the subscription half
// of the request store over the daemon's long-poll feeds, so a remote
// syncctl.Controller behaves like a local one. Daemon error responses come
// back as *RemoteError, which classifies with requests.Kind and matches
// requests.ErrNotFound and requests.ErrUnavailable under errors.Is.
package apiclient
