// Command flowops runs the release coordination daemon and talks to it over
// its HTTP API.
//
// `flowops daemon` runs the service in the foreground; `flowops start`
// launches it in the background. `config` and `events` work on local files;
// the remaining commands are thin API clients that render daemon responses
// as tables, or as JSON with --json.
package main
