// Command stagequeue is the operator and display CLI for the karaoke request
// queue. It talks to a running stagequeued over HTTP: submitting requests,
// moving them through approve, play, and done, rendering each role's views as
// tables, following the live queue with watch, and wiping the night's
// requests with a twice-confirmed reset.
package main
