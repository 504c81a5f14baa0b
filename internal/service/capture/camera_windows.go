//go:build windows

package capture

import "gocv.io/x/gocv"

// openDevice prefers DirectShow, which opens USB cameras much faster than
// the default Media Foundation backend.
func openDevice(index int) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureDshow)
}
