//go:build !windows

package capture

import "gocv.io/x/gocv"

func openDevice(index int) (*gocv.VideoCapture, error) {
	return gocv.VideoCaptureDevice(index)
}
