/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"strings"
)

// Console widths shared by the operator tools. Instruction listings carry
// ids and reasons on one line, so they get the wide variant.
const (
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintHeader opens a console section with a titled rule.
func PrintHeader(title string, width int) {
	rule := strings.Repeat("=", width)
	fmt.Println("\n" + rule)
	fmt.Println(title)
	fmt.Println(rule)
}

// PrintFooter closes a console section with a summary line.
func PrintFooter(message string, width int) {
	rule := strings.Repeat("=", width)
	fmt.Println("\n" + rule)
	fmt.Println(message)
	fmt.Println(rule + "\n")
}

// PrintBoxSeparator draws the rule between a box header and its rows.
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the branch glyph for a row in a box listing.
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the continuation glyph for detail lines under a row.
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}
