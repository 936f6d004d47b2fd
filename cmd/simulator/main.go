package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SessionView is the subset of the session view the simulator follows.
type SessionView struct {
	SessionID      string         `json:"session_id"`
	TourID         string         `json:"tour_id"`
	Phase          string         `json:"phase"`
	StopIndex      int            `json:"stop_index"`
	TotalStops     int            `json:"total_stops"`
	Progress       map[string]int `json:"progress"`
	Completed      bool           `json:"completed"`
	Warnings       []string       `json:"warnings,omitempty"`
	RemainingStops []struct {
		Address  string `json:"address"`
		Required int    `json:"required"`
	} `json:"remaining_stops"`
}

// ScanResult mirrors the scan endpoint response.
type ScanResult struct {
	Accepted bool        `json:"accepted"`
	Signal   string      `json:"signal,omitempty"`
	View     SessionView `json:"view"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Driver plays a delivery driver scanning QR codes along a tour.
type Driver struct {
	APIURL   string
	DeviceID string
	Interval time.Duration
	client   *http.Client
}

func NewDriver(apiURL, deviceID string, interval time.Duration) *Driver {
	return &Driver{
		APIURL:   apiURL,
		DeviceID: deviceID,
		Interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Driver) post(url string, payload interface{}, out interface{}) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", d.DeviceID)
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Start opens a tracking session for a tour, by id or by city.
func (d *Driver) Start(tourID, city string) (SessionView, error) {
	var view SessionView
	_, err := d.post(d.APIURL+"/sessions", map[string]string{
		"tour_id":   tourID,
		"city":      city,
		"device_id": d.DeviceID,
	}, &view)
	if err != nil {
		return view, fmt.Errorf("failed to start session: %w", err)
	}
	log.WithFields(log.Fields{
		"session_id": view.SessionID,
		"tour_id":    view.TourID,
		"stops":      view.TotalStops,
	}).Info("Session started")
	return view, nil
}

// Scan posts one QR payload to the session.
func (d *Driver) Scan(sessionID, payload string) (ScanResult, error) {
	var res ScanResult
	_, err := d.post(d.APIURL+"/sessions/"+sessionID+"/scans", map[string]string{"payload": payload}, &res)
	return res, err
}

// Drive scans every Interval until the tour completes or maxScans is reached.
func (d *Driver) Drive(view SessionView, maxScans int) (SessionView, error) {
	for i := 0; i < maxScans && !view.Completed; i++ {
		if i > 0 {
			time.Sleep(d.Interval)
		}
		res, err := d.Scan(view.SessionID, fmt.Sprintf("QR-%s-%d", view.TourID, i))
		if err != nil {
			return view, fmt.Errorf("scan %d: %w", i, err)
		}
		fields := log.Fields{"scan": i, "accepted": res.Accepted, "phase": res.View.Phase, "stop": res.View.StopIndex}
		if !res.Accepted {
			log.WithFields(fields).Warn("Scan ignored")
		} else {
			log.WithFields(fields).WithField("signal", res.Signal).Info("Scan accepted")
		}
		for _, w := range res.Warnings {
			log.WithField("warning", w).Warn("Completion warning")
		}
		view = res.View
	}
	if !view.Completed {
		return view, fmt.Errorf("tour not completed after %d scans", maxScans)
	}
	return view, nil
}

// scansNeeded counts one depot scan plus one scan per basket for every remaining stop.
func scansNeeded(view SessionView) int {
	n := 0
	for _, s := range view.RemainingStops {
		n += 1 + s.Required
	}
	return n
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	deviceID := os.Getenv("SIM_DEVICE_ID")
	if deviceID == "" {
		deviceID = "sim-" + uuid.NewString()[:8]
	}
	city := os.Getenv("SIM_CITY")
	tourID := os.Getenv("SIM_TOUR_ID")
	if city == "" && tourID == "" {
		city = "Epinal"
	}

	interval := 3 * time.Second
	if v := os.Getenv("SIM_SCAN_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			interval = time.Duration(n) * time.Millisecond
		}
	}

	log.WithFields(log.Fields{
		"api_url":   apiURL,
		"device_id": deviceID,
		"city":      city,
		"tour_id":   tourID,
		"interval":  interval,
	}).Info("Starting driver simulation")

	driver := NewDriver(apiURL, deviceID, interval)
	view, err := driver.Start(tourID, city)
	if err != nil {
		log.WithError(err).Fatal("Simulation aborted")
	}
	// Twice the minimum leaves room for debounced scans.
	view, err = driver.Drive(view, 2*scansNeeded(view))
	if err != nil {
		log.WithError(err).Fatal("Simulation failed")
	}
	log.WithField("tour_id", view.TourID).Info("Tour delivered")
}
