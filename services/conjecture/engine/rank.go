// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "github.com/adamchainz/conjecture/services/conjecture/trace"

// Better reports whether candidate should replace best.
//
// Description:
//
//	A higher status always wins and a lower one always loses. Between two
//	Invalid results the one that consumed at least as much input wins, so
//	discovery drifts toward inputs that get further. Between two Overrun
//	results the one that asked for no more input wins. Between two
//	Interesting results only a strictly simpler one wins, by trace.Compare.
//	Two Valid results keep best. A nil best is always replaced.
//
// Thread Safety: Pure function; safe for concurrent use.
func Better(candidate, best *trace.Result) bool {
	if best == nil {
		return true
	}
	cs, bs := candidate.Status(), best.Status()
	if cs != bs {
		return cs > bs
	}
	switch cs {
	case trace.Invalid:
		return candidate.Index() >= best.Index()
	case trace.Overrun:
		return candidate.Index() <= best.Index()
	case trace.Interesting:
		return trace.Compare(candidate, best) < 0
	default:
		return false
	}
}
