package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type handle struct {
	Node string `json:"Node"`
	Task string `json:"Task"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "node address")
	scope := flag.String("scope", "default", "scope name")
	group := flag.String("group", "bench", "group name")
	n := flag.Int("n", 2000, "join/leave cycles")
	conc := flag.Int("c", 32, "concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	var ok, failed atomic.Int64
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, *conc)
	start := time.Now()

	for i := 0; i < *n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			h := handle{Node: "bench", Task: fmt.Sprintf("worker-%d", i)}
			meta, _ := json.Marshal(map[string]int{"seq": rand.Intn(1000)})

			if !postOK(client, *addr+"/v1/"+*scope+"/join", map[string]any{
				"group": *group, "handle": h, "meta": json.RawMessage(meta),
			}) {
				failed.Add(1)
				return
			}
			if !postOK(client, *addr+"/v1/"+*scope+"/leave", map[string]any{
				"group": *group, "handle": h,
			}) {
				failed.Add(1)
				return
			}
			ok.Add(1)
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)
	fmt.Printf("Completed %d join/leave cycles (%d ok, %d failed) in %s (%.2f ops/s)\n",
		*n, ok.Load(), failed.Load(), dur, float64(*n)*2/dur.Seconds())
}

func postOK(client *http.Client, url string, body any) bool {
	b, err := json.Marshal(body)
	if err != nil {
		return false
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}
