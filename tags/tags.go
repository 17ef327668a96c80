package tags

import "github.com/yohamta/donburi"

// Ownership tags for bridge arena entries. Every body carries exactly one.
var (
	Owned  = donburi.NewTag().SetName("Owned")
	Remote = donburi.NewTag().SetName("Remote")
)

// Resolv tags for physics collision
const (
	ResolvSolid     = "solid"
	ResolvBody      = "body"
	ResolvKinematic = "kinematic"
)
