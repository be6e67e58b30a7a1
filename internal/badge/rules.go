package badge

import (
	"time"

	"github.com/pubcrawl-badges/internal/domain"
)

// Kind tells how a rule guards against awarding a badge twice
type Kind string

const (
	// KindMilestone rules fire at an exact count crossing
	KindMilestone Kind = "milestone"
	// KindCumulative rules stay true once reached and rely on the held check
	KindCumulative Kind = "cumulative"
)

const (
	localLegendCheckIns   = 10
	regionalChampionPubs  = 5
	hatTrickDailyCheckIns = 3
)

// Predicate reports whether the user in c qualifies for a badge.
// Predicates must not have side effects.
type Predicate func(c *TriggerContext) bool

// Rule binds a badge id to its predicate
type Rule struct {
	BadgeID string
	Kind    Kind
	Check   Predicate
}

// RuleOptions tunes the time based rules
type RuleOptions struct {
	Location        *time.Location
	EarlyBirdHour   int
	NightOwlHour    int
	HatTrickEnabled bool
}

// DefaultRuleOptions returns noon for early-bird, 21:00 for night-owl, UTC,
// with hat-trick enabled.
func DefaultRuleOptions() RuleOptions {
	return RuleOptions{
		Location:        time.UTC,
		EarlyBirdHour:   12,
		NightOwlHour:    21,
		HatTrickEnabled: true,
	}
}

// DefaultRules returns the rule table in evaluation order
func DefaultRules(opts RuleOptions) []Rule {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	rules := []Rule{
		{BadgeID: domain.BadgeFirstTimer, Kind: KindMilestone, Check: FirstTimer},
		{BadgeID: domain.BadgeLocalLegend, Kind: KindMilestone, Check: LocalLegend},
		{BadgeID: domain.BadgeRegionalChampion, Kind: KindCumulative, Check: RegionalChampion},
		{BadgeID: domain.BadgeEarlyBird, Kind: KindCumulative, Check: EarlyBird(loc, opts.EarlyBirdHour)},
		{BadgeID: domain.BadgeNightOwl, Kind: KindCumulative, Check: NightOwl(loc, opts.NightOwlHour)},
	}
	if opts.HatTrickEnabled {
		rules = append(rules, Rule{BadgeID: domain.BadgeHatTrick, Kind: KindMilestone, Check: HatTrick(loc)})
	}
	return rules
}

// FirstTimer holds when the trigger is the user's only check-in
func FirstTimer(c *TriggerContext) bool {
	return len(c.CheckIns) == 1
}

// LocalLegend holds on the 10th check-in only
func LocalLegend(c *TriggerContext) bool {
	return len(c.CheckIns) == localLegendCheckIns
}

// RegionalChampion holds once five distinct pubs were visited and the badge
// is not held yet
func RegionalChampion(c *TriggerContext) bool {
	return DistinctPubs(c.CheckIns) >= regionalChampionPubs && !c.Holds(domain.BadgeRegionalChampion)
}

// EarlyBird holds when any check-in happened before hour in loc
func EarlyBird(loc *time.Location, hour int) Predicate {
	return anyCheckIn(func(ci domain.CheckIn) bool {
		return ci.HourIn(loc) < hour
	})
}

// NightOwl holds when any check-in happened at or after hour in loc
func NightOwl(loc *time.Location, hour int) Predicate {
	return anyCheckIn(func(ci domain.CheckIn) bool {
		return ci.HourIn(loc) >= hour
	})
}

// HatTrick holds when exactly three check-ins share the trigger's day
func HatTrick(loc *time.Location) Predicate {
	return func(c *TriggerContext) bool {
		day := c.CheckIn.DayIn(loc)
		count := 0
		for _, ci := range c.CheckIns {
			if ci.DayIn(loc) == day {
				count++
			}
		}
		return count == hatTrickDailyCheckIns
	}
}

func anyCheckIn(match func(domain.CheckIn) bool) Predicate {
	return func(c *TriggerContext) bool {
		for _, ci := range c.CheckIns {
			if match(ci) {
				return true
			}
		}
		return false
	}
}
