// Package slotpool is the reference capability.SlotProvider: a fixed-size
// idle pool of pre-created RuntimeDriver slots for one image, so Admit's
// acquire call is a pop off a slice rather than an image pull plus
// container create.
package slotpool
