package game

import "math"

// Skill names used by the gathering loops.
const (
	SkillWoodcutting = "woodcutting"
	SkillMining      = "mining"
	SkillFishing     = "fishing"
)

// Skill tracks a single skill's progression.
type Skill struct {
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

// SkillSet maps skill names to their progression.
type SkillSet map[string]*Skill

func NewSkillSet() SkillSet {
	return SkillSet{}
}

// LevelForExperience returns the level implied by cumulative experience:
// floor(1 + sqrt(xp / 100)). Monotonic in xp.
func LevelForExperience(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return int(1 + math.Sqrt(float64(xp)/100.0))
}

// Get returns the skill entry, creating a level-1 entry if absent.
func (s SkillSet) Get(name string) *Skill {
	sk, ok := s[name]
	if !ok {
		sk = &Skill{Level: 1}
		s[name] = sk
	}
	return sk
}

// Level returns the current level for a skill, defaulting to 1.
func (s SkillSet) Level(name string) int {
	if sk, ok := s[name]; ok {
		return sk.Level
	}
	return 1
}

// AddExperience applies an experience reward and recomputes the level.
// A level is never decreased by this call. Returns the new totals and
// whether a level threshold was crossed.
func (s SkillSet) AddExperience(name string, amount int) (xp, level int, leveled bool) {
	sk := s.Get(name)
	if amount > 0 {
		sk.Experience += amount
	}
	newLevel := LevelForExperience(sk.Experience)
	if newLevel > sk.Level {
		sk.Level = newLevel
		leveled = true
	}
	return sk.Experience, sk.Level, leveled
}

// Snapshot returns a copy of the skill set for persistence or the wire.
func (s SkillSet) Snapshot() map[string]Skill {
	out := make(map[string]Skill, len(s))
	for name, sk := range s {
		out[name] = *sk
	}
	return out
}

// Restore replaces the skill set from persisted records, re-deriving
// levels so a corrupted record can never lower one below its xp.
func (s SkillSet) Restore(skills map[string]Skill) {
	for name := range s {
		delete(s, name)
	}
	for name, sk := range skills {
		cp := sk
		if derived := LevelForExperience(cp.Experience); derived > cp.Level {
			cp.Level = derived
		}
		if cp.Level < 1 {
			cp.Level = 1
		}
		s[name] = &cp
	}
}
