// Package git decides whether the step daemon checkout needs a rebuild.
//
// Check clones the source repository when no checkout exists, otherwise fetches the
// remote and compares the local HEAD with the tip of the tracked remote branch. A
// differing tip (or a fresh clone) is hard-reset into the working tree and reported
// as needing an update; an equal tip leaves the checkout untouched.
package git
