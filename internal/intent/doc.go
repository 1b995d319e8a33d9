// Package intent maps named editing styles onto concrete edit parameter
// profiles. A profile fixes the knobs the planner turns: segment pacing,
// transition treatment, grade, speed, and effect chain.
package intent
