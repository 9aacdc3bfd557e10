// Command erp_probe checks that the external ERP record store is reachable
// and answering for every table the registration templates push to. Run it
// before large bulk imports or after a sync outage to see which tables are
// healthy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type table struct {
	Name     string `json:"name"`
	SampleID string `json:"sampleId"`
	Critical bool   `json:"critical"`
}

type config struct {
	Tables []table `json:"tables"`
}

type probe struct {
	Table    table
	Status   int
	Duration time.Duration
	Records  int
	Error    error
}

func main() {
	var (
		baseURL     string
		apiKey      string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:9000", "ERP record store base URL")
	flag.StringVar(&apiKey, "api-key", os.Getenv("ERP_API_KEY"), "ERP API key (defaults to ERP_API_KEY)")
	flag.StringVar(&targetsPath, "tables", filepath.Join("scripts", "erp_probe", "tables.json"), "Path to JSON tables file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	tables, err := loadTables(targetsPath)
	if err != nil {
		log.Fatalf("failed to load tables: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results      []probe
		criticalDown int
		degraded     int
	)

	for _, t := range tables {
		res := probeTable(client, baseURL, apiKey, t)
		if res.Error != nil || res.Status >= 500 {
			if t.Critical {
				criticalDown++
			} else {
				degraded++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Critical tables down: %d, Degraded tables: %d\n", criticalDown, degraded)
	if criticalDown > 0 {
		os.Exit(1)
	}
}

func loadTables(path string) ([]table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("no tables defined in %s", path)
	}
	return cfg.Tables, nil
}

// probeTable hits the record listing endpoint, or a single-record fetch when
// a sample id is configured. A sample fetch returning 404 still counts as
// healthy transport.
func probeTable(client *http.Client, baseURL, apiKey string, t table) probe {
	res := probe{Table: t}

	endpoint := fmt.Sprintf("%s/tables/%s/records", strings.TrimRight(baseURL, "/"), url.PathEscape(t.Name))
	if t.SampleID != "" {
		endpoint += "/" + url.PathEscape(t.SampleID)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = fmt.Errorf("request failed: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	if resp.StatusCode >= 500 {
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	if t.SampleID == "" && resp.StatusCode == http.StatusOK {
		var records []json.RawMessage
		if err := json.Unmarshal(body, &records); err == nil {
			res.Records = len(records)
		}
	}
	return res
}

func printReport(results []probe) {
	fmt.Println("ERP Probe Report")
	fmt.Println("================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Status >= 500 {
			status = "DOWN"
		} else if res.Status >= 400 && res.Table.SampleID == "" {
			status = "WARN"
		}
		fmt.Printf("[%s] table %s\n", status, res.Table.Name)
		if res.Error != nil {
			fmt.Printf("  Error: %v (%s)\n", res.Error, res.Duration)
			continue
		}
		fmt.Printf("  Status: %d (%s)\n", res.Status, res.Duration)
		if res.Table.SampleID != "" {
			fmt.Printf("  Sample record: %s | Critical: %t\n", res.Table.SampleID, res.Table.Critical)
		} else {
			fmt.Printf("  Records sampled: %d | Critical: %t\n", res.Records, res.Table.Critical)
		}
	}
}
