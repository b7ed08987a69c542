// Package markdown compiles markdown bodies into a JSON node tree in which a
// closed set of node kinds (alerts, footnote references, link cards, code
// blocks, headings and images) is modelled explicitly and everything else is
// kept as generic elements.
package markdown
