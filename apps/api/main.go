package main

import (
	_ "net/http/pprof" // register the /debug/pprof handlers
)

// TODO:
// - APM/Tracing on the progress pipeline
// - rate limit progress events per student
func main() {
	startWithDig()
}
