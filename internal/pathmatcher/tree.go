/**
 * Copyright 2026 Mia srl
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package pathmatcher

import "strings"

const paramPrefix = ":"

// Node is a path segment in the tree of allowed prefixes. Segments starting
// with ':' match any non empty segment.
type Node struct {
	Segment  string
	IsParam  bool
	Depth    int
	Terminal bool
	Children []*Node
}

func newNode(segment string, isParam bool, depth int) *Node {
	return &Node{
		Segment:  segment,
		IsParam:  isParam,
		Depth:    depth,
		Children: make([]*Node, 0),
	}
}

func (n *Node) appendChild(segment string, isParam bool, depth int) *Node {
	for _, child := range n.Children {
		if child.Segment == segment && child.IsParam == isParam {
			return child
		}
	}
	child := newNode(segment, isParam, depth)
	n.Children = append(n.Children, child)
	return child
}

func (n *Node) insertPrefix(prefix string) {
	current := n
	for depth, segment := range splitSegments(prefix) {
		current = current.appendChild(segment, strings.HasPrefix(segment, paramPrefix), depth+1)
	}
	current.Terminal = true
}

// New builds the tree of the given path prefixes.
func New(prefixes []string) *Node {
	root := newNode("", false, 0)
	for _, prefix := range prefixes {
		root.insertPrefix(prefix)
	}
	return root
}

// Match reports whether path starts with one of the prefixes, comparing
// whole segments only.
func (n *Node) Match(path string) bool {
	segments := splitSegments(path)

	queue := newQueue()
	queue.Push(n)
	for queue.Size() > 0 {
		current := queue.Pop()
		if current.Depth > 0 {
			segment := segments[current.Depth-1]
			if current.IsParam && segment == "" {
				continue
			}
			if !current.IsParam && current.Segment != segment {
				continue
			}
		}

		if current.Terminal {
			return true
		}
		if current.Depth == len(segments) {
			continue
		}
		for _, child := range current.Children {
			queue.Push(child)
		}
	}
	return false
}

func splitSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}
