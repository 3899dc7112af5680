package common

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type CIResult struct {
	OK        bool      `json:"ok"`
	Title     string    `json:"title"`
	Details   []string  `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PrintCIResult writes one JSON line to stdout for pipeline consumption.
func PrintCIResult(ok bool, title string, details []string, err error) {
	res := CIResult{OK: ok, Title: title, Details: details, Timestamp: time.Now().UTC()}
	if err != nil {
		res.Error = err.Error()
	}
	out, mErr := json.Marshal(res)
	if mErr != nil {
		fmt.Fprintf(os.Stderr, "encode ci result: %v\n", mErr)
		return
	}
	fmt.Println(string(out))
}
