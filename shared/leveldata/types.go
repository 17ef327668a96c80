// Package leveldata parses TMX scenes into the static geometry and rigid
// bodies a simulating peer registers with its engine and bridge.
// It has no dependencies on ebitengine, donburi or resolv: pure data only.
package leveldata

// SceneData holds everything parsed from a TMX scene file. Coordinates are
// pixels.
type SceneData struct {
	Name      string
	Solids    []SolidRect
	Bodies    []BodySpawn
	MapWidth  int
	MapHeight int
}

// SolidRect is static collision geometry.
type SolidRect struct {
	X, Y, W, H float64
}

// BodySpawn is a rigid body placed in the scene.
type BodySpawn struct {
	ID         string
	X, Y, W, H float64
	Mass       float64
	Owner      string // Empty means the loading peer owns it
	Kinematic  bool
	Mover      *MoverPath
}

// MoverPath animates a keyframed body between its spawn point and a target.
type MoverPath struct {
	ToX, ToY float64
	Duration float64 // Seconds for one leg
	PingPong bool
}
