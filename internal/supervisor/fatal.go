package supervisor

import "strings"

// fatalErrorMarkers are stderr fragments the Node.js runtime prints when the
// engine dies in a way a restart will not fix by itself
var fatalErrorMarkers = []string{
	"FATAL ERROR: ",
	"- JavaScript heap out of memory",
}

// IsFatalErrorLine reports whether line contains any fatal error marker
func IsFatalErrorLine(line string) bool {
	for _, marker := range fatalErrorMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
