package leveldata

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
)

// Layer and object group names the loader looks for.
const (
	SolidTileLayer   = "solids"
	SolidObjectGroup = "Solids"
	BodyObjectGroup  = "Bodies"
)

// LoadScene parses a TMX file. It takes an fs.FS so callers can pass
// embed.FS or os.DirFS.
func LoadScene(fsys fs.FS, tmxPath string) (*SceneData, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &SceneData{
		Name:      strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		MapWidth:  levelMap.Width * levelMap.TileWidth,
		MapHeight: levelMap.Height * levelMap.TileHeight,
	}

	// Every non-empty tile of the solids layer is a full-tile box
	tileW := float64(levelMap.TileWidth)
	tileH := float64(levelMap.TileHeight)
	for _, layer := range levelMap.Layers {
		if layer.Name != SolidTileLayer {
			continue
		}
		for y := 0; y < levelMap.Height; y++ {
			for x := 0; x < levelMap.Width; x++ {
				tile := layer.Tiles[y*levelMap.Width+x]
				if tile.IsNil() {
					continue
				}
				data.Solids = append(data.Solids, SolidRect{
					X: float64(x) * tileW,
					Y: float64(y) * tileH,
					W: tileW,
					H: tileH,
				})
			}
		}
		break
	}

	for _, og := range levelMap.ObjectGroups {
		switch og.Name {
		case SolidObjectGroup:
			for _, o := range og.Objects {
				data.Solids = append(data.Solids, SolidRect{X: o.X, Y: o.Y, W: o.Width, H: o.Height})
			}
		case BodyObjectGroup:
			for _, o := range og.Objects {
				body, err := parseBody(o)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", tmxPath, err)
				}
				data.Bodies = append(data.Bodies, body)
			}
		}
	}

	// Stable order so every peer registers bodies identically
	sort.Slice(data.Bodies, func(i, j int) bool {
		return data.Bodies[i].ID < data.Bodies[j].ID
	})

	return data, nil
}

func parseBody(o *tiled.Object) (BodySpawn, error) {
	if o.Name == "" {
		return BodySpawn{}, fmt.Errorf("body object %d has no name", o.ID)
	}
	body := BodySpawn{
		ID:        o.Name,
		X:         o.X,
		Y:         o.Y,
		W:         o.Width,
		H:         o.Height,
		Mass:      o.Properties.GetFloat("mass"),
		Owner:     o.Properties.GetString("owner"),
		Kinematic: o.Properties.GetBool("kinematic"),
	}
	if body.Mass <= 0 {
		body.Mass = 1
	}
	if d := o.Properties.GetFloat("duration"); d > 0 {
		body.Mover = &MoverPath{
			ToX:      o.Properties.GetFloat("toX"),
			ToY:      o.Properties.GetFloat("toY"),
			Duration: d,
			PingPong: o.Properties.GetBool("pingpong"),
		}
		body.Kinematic = true
	}
	return body, nil
}

// LoadAllScenes discovers all .tmx files in dir within fsys and returns them
// keyed by stem name plus a sorted list of names.
func LoadAllScenes(fsys fs.FS, dir string) (map[string]*SceneData, []string, error) {
	pattern := dir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	scenes := make(map[string]*SceneData, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		data, err := LoadScene(fsys, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", path, err)
		}
		scenes[data.Name] = data
		names = append(names, data.Name)
	}

	sort.Strings(names)
	return scenes, names, nil
}
