// Package vkimage manages Vulkan image resources: it pairs a native image
// handle with its backing device memory, drives the layout transitions that
// make an image usable as an upload target or shader-read source, and copies
// pixel data from staging buffers into image array layers.
//
// Every GPU-side operation records into a short-lived command buffer and
// blocks until the device has executed it, so calls are strictly ordered and
// safe to issue serially from one goroutine. Resources are single-owner:
// nothing in this package is safe for concurrent use on the same instance.
package vkimage
