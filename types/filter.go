package types

// FilterFunc resolves the entities received for one signal within one frame
// to a single winner.
//
// The filter runs for every signal, including signals with a single entity.
// The entities slice is never empty and is ordered by arrival. Filters must
// be deterministic for a fixed input order and must not retain the slice.
// A nil result drops the signal from the frame and counts all of its
// entities as down-sampled.
type FilterFunc func(frameTimestamp Ticks, entities []Entity) Entity

// LastReceived returns the most recently received entity. It is the default filter.
func LastReceived(_ Ticks, entities []Entity) Entity {
	return entities[len(entities)-1]
}

// FirstReceived returns the earliest received entity.
func FirstReceived(_ Ticks, entities []Entity) Entity {
	return entities[0]
}

// ClosestToTimestamp returns the entity whose timestamp is nearest to the
// frame timestamp. Ties go to the later arrival.
func ClosestToTimestamp(frameTimestamp Ticks, entities []Entity) Entity {
	best := entities[0]
	bestDistance := absTicks(best.Timestamp() - frameTimestamp)

	for _, e := range entities[1:] {
		if d := absTicks(e.Timestamp() - frameTimestamp); d <= bestDistance {
			best, bestDistance = e, d
		}
	}

	return best
}

// BestQuality returns the last received entity with good timestamp quality,
// or the last received entity when none qualifies.
func BestQuality(frameTimestamp Ticks, entities []Entity) Entity {
	for i := len(entities) - 1; i >= 0; i-- {
		if entities[i].TimestampQualityIsGood() {
			return entities[i]
		}
	}

	return LastReceived(frameTimestamp, entities)
}

func absTicks(t Ticks) Ticks {
	if t < 0 {
		return -t
	}

	return t
}
