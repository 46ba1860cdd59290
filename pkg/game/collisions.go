package game

import (
	"fmt"
	"math"

	"github.com/solarlune/resolv"

	"github.com/voltgrid/voltgrid/pkg/game/types"
)

const (
	collisionCellSize = 8

	tagCycle = "cycle"
	tagTrail = "trail"
	// tagRecent marks the trail laid just behind an entity's head. A cycle
	// always overlaps its own head segment, and right after a turn it still
	// clips the segment it just left, so those never count as hits.
	tagRecent = "recent"
)

func ownerTag(id uint32) string {
	return fmt.Sprintf("owner-%d", id)
}

// collisionWorld is rebuilt from scratch every tick. Trail geometry grows and
// shifts each step, so re-adding the handful of boxes is simpler and cheaper
// than keeping a persistent space in sync.
type collisionWorld struct {
	space  *resolv.Space
	offset float64
	cycles map[uint32]*resolv.Object
}

func newCollisionWorld(s *types.MatchState, p Params) *collisionWorld {
	margin := float64(collisionCellSize)
	size := int(2*p.ArenaHalfSize+2*margin) + collisionCellSize
	w := &collisionWorld{
		space:  resolv.NewSpace(size, size, collisionCellSize, collisionCellSize),
		offset: p.ArenaHalfSize + margin,
		cycles: make(map[uint32]*resolv.Object),
	}

	for _, id := range s.PlayerIDs() {
		e := s.Entities[id]
		if !e.Alive {
			continue
		}
		w.addTrail(e, p)
		w.addCycle(e, p)
	}
	return w
}

func (w *collisionWorld) addCycle(e *types.EntityState, p Params) {
	obj := resolv.NewObject(
		e.Position.X-p.CycleSize/2+w.offset,
		e.Position.Y-p.CycleSize/2+w.offset,
		p.CycleSize, p.CycleSize,
		tagCycle, ownerTag(e.PlayerID),
	)
	w.space.Add(obj)
	w.cycles[e.PlayerID] = obj
}

func (w *collisionWorld) addTrail(e *types.EntityState, p Params) {
	pts := append(append([]types.Vec2{}, e.Trail...), e.Position)

	// Trail within this arc length of the head is "recent": the cycle's own
	// box can still touch it after a tight turn, so it must not kill.
	recentDist := p.CycleSize + p.TrailWidth

	fromHead := 0.0
	for i := len(pts) - 2; i >= 0; i-- {
		tags := []string{tagTrail, ownerTag(e.PlayerID)}
		if fromHead < recentDist {
			tags = append(tags, tagRecent)
		}
		w.space.Add(w.segmentObject(pts[i], pts[i+1], p.TrailWidth, tags))
		fromHead += segmentLength(pts[i], pts[i+1])
	}
}

func segmentLength(a, b types.Vec2) float64 {
	return math.Abs(b.X-a.X) + math.Abs(b.Y-a.Y)
}

// segmentObject builds the axis-aligned box covering a trail segment,
// widened by half the trail width on every side.
func (w *collisionWorld) segmentObject(a, b types.Vec2, width float64, tags []string) *resolv.Object {
	half := width / 2
	minX := math.Min(a.X, b.X) - half
	minY := math.Min(a.Y, b.Y) - half
	maxX := math.Max(a.X, b.X) + half
	maxY := math.Max(a.Y, b.Y) + half
	return resolv.NewObject(minX+w.offset, minY+w.offset, maxX-minX, maxY-minY, tags...)
}

// cycleHits reports whether the given cycle overlaps any trail it is allowed
// to die on, or another cycle. The space's cell check is only a broad phase;
// candidates are confirmed with an exact box overlap so that grazing a
// neighboring cell does not kill anyone.
func (w *collisionWorld) cycleHits(id uint32) bool {
	obj, ok := w.cycles[id]
	if !ok {
		return false
	}
	own := ownerTag(id)

	if collision := obj.Check(0, 0, tagTrail); collision != nil {
		for _, other := range collision.Objects {
			if other.HasTags(own) && other.HasTags(tagRecent) {
				continue
			}
			if boxesOverlap(obj, other) {
				return true
			}
		}
	}
	if collision := obj.Check(0, 0, tagCycle); collision != nil {
		for _, other := range collision.Objects {
			if other.HasTags(own) {
				continue
			}
			if boxesOverlap(obj, other) {
				return true
			}
		}
	}
	return false
}

func boxesOverlap(a, b *resolv.Object) bool {
	return a.Position.X < b.Position.X+b.Size.X &&
		b.Position.X < a.Position.X+a.Size.X &&
		a.Position.Y < b.Position.Y+b.Size.Y &&
		b.Position.Y < a.Position.Y+a.Size.Y
}

// outOfBounds reports whether the cycle's box extends past the arena wall.
func outOfBounds(e *types.EntityState, p Params) bool {
	half := p.CycleSize / 2
	return math.Abs(e.Position.X)+half > p.ArenaHalfSize ||
		math.Abs(e.Position.Y)+half > p.ArenaHalfSize
}
