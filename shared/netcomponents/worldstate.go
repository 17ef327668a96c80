package netcomponents

import "github.com/yohamta/donburi"

type NetWorldStateData struct {
	ServerName string
	Peers      int
	Bodies     int
	Uptime     float64
	Owners     map[string]string // Body id -> owning source
}

var NetWorldState = donburi.NewComponentType[NetWorldStateData]()
