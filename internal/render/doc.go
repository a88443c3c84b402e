// Package render drives a headless Chromium through go-rod.
//
// One browser process serves every render call. Each call gets its own
// browser context carrying the selected proxy, so proxies rotate without
// restarting Chromium and calls never share cookies or cache. The context
// is disposed when the call returns.
//
// Failures are returned as *model.KindError; Classify maps Chromium
// network error codes and context errors onto the error taxonomy.
package render
