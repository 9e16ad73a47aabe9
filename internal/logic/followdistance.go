package logic

// stepFollowDistance applies every gap-adjust release in edges to cur.
func stepFollowDistance(cfg FollowDistanceConfig, cur int, edges []ButtonEdge) int {
	for _, e := range edges {
		if e.ID == ButtonGapAdjust && !e.Pressed {
			cur = cfg.Step(cur)
		}
	}
	return cur
}

// Step moves cur one notch in the configured direction, wrapping cyclically
// inside [Min, Max]. An unusable config leaves cur unchanged.
func (c FollowDistanceConfig) Step(cur int) int {
	if c.Max < c.Min || c.Direction == 0 {
		return cur
	}
	next := cur + c.Direction
	switch {
	case next < c.Min:
		return c.Max
	case next > c.Max:
		return c.Min
	}
	return next
}
