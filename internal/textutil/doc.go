// Package textutil provides the text helpers used to derive titles, hashtags
// and file names from job sources.
//
// Tokenization lowercases text, splits on non-alphanumeric characters and
// drops tokens shorter than 3 characters.
package textutil
