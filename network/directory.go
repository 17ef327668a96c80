package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// RelayInfo is a directory entry for one relay server.
type RelayInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Peers   int    `json:"peers"`
	Bodies  int    `json:"bodies"`
	Version string `json:"version"`
	Region  string `json:"region"`
}

type relayUpdate struct {
	Revision uint64      `json:"revision"`
	Relays   []RelayInfo `json:"relays"`
}

// ListRelays fetches the directory's relay list. A non-empty version keeps
// only relays that accept it.
func ListRelays(ctx context.Context, directory, version string) ([]RelayInfo, error) {
	u := strings.TrimRight(directory, "/") + "/relays"
	if version != "" {
		u += "?version=" + url.QueryEscape(version)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list relays: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list relays: unexpected status %d", resp.StatusCode)
	}
	var relays []RelayInfo
	if err := json.NewDecoder(resp.Body).Decode(&relays); err != nil {
		return nil, fmt.Errorf("list relays: %w", err)
	}
	return relays, nil
}

// PickRelay chooses the relay called name, or the least loaded one when name
// is empty. Relays with a different version are skipped.
func PickRelay(relays []RelayInfo, version, name string) (RelayInfo, bool) {
	var candidates []RelayInfo
	for _, r := range relays {
		if version != "" && r.Version != "" && r.Version != version {
			continue
		}
		if name != "" && r.Name != name {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return RelayInfo{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Peers != candidates[j].Peers {
			return candidates[i].Peers < candidates[j].Peers
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0], true
}

// WaitRelay subscribes to the directory's watch feed and returns as soon as
// a matching relay is listed. It blocks until ctx is done otherwise.
func WaitRelay(ctx context.Context, directory, version, name string) (RelayInfo, error) {
	base := strings.TrimRight(directory, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	conn, _, err := websocket.Dial(ctx, base+"/watch", nil)
	if err != nil {
		return RelayInfo{}, fmt.Errorf("watch directory: %w", err)
	}
	defer conn.CloseNow()

	for {
		var update relayUpdate
		if err := wsjson.Read(ctx, conn, &update); err != nil {
			return RelayInfo{}, fmt.Errorf("watch directory: %w", err)
		}
		if r, ok := PickRelay(update.Relays, version, name); ok {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return r, nil
		}
	}
}
