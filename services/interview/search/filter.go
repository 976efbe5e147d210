// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import "strings"

// bookDomains are book sellers and e-commerce sites whose results point at
// paid content rather than free learning material.
var bookDomains = []string{
	"amazon.",
	"barnesandnoble.com",
	"goodreads.com",
	"audible.",
	"ebay.",
	"etsy.",
	"abebooks.com",
	"bookdepository.com",
	"springer.com/shop",
	"shop.oreilly.com",
}

// paidIndicators in a title mark paywalled or purchasable content.
var paidIndicators = []string{
	"buy",
	"purchase",
	"premium",
	"subscription",
	"kindle",
	"paperback",
}

// isFreeContent reports whether a result passes the free-content filter.
func isFreeContent(url, title string) bool {
	lowURL := strings.ToLower(url)
	for _, d := range bookDomains {
		if strings.Contains(lowURL, d) {
			return false
		}
	}
	lowTitle := strings.ToLower(title)
	for _, w := range paidIndicators {
		if strings.Contains(lowTitle, w) {
			return false
		}
	}
	return true
}
