// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

// PreludeName is the library entry that, when present in the store, replaces
// the prelude source.
const PreludeName = "__prelude__"

// DefaultPrelude defines the helper functions every scope created by a
// Parser can see, unless WithNoPrelude is given.
const DefaultPrelude = `
clamp(x, lo, hi) = min(max(x, lo), hi);
avg(xs) = length xs > 0 ? sum(xs) / length xs : NaN;
deg(r) = r * 180 / PI;
rad(d) = d * PI / 180;
lerp(a, b, t) = a + (b - a) * t
`
