/*
Package clipper is the geometry and resolution engine of an interactive image
cropper.

A host opens a Session for an image, forwards pointer and wheel events to it,
draws whatever Frame describes, and finally confirms or cancels:

	s, err := clipper.Open(ctx, clipper.FromString("photo.jpg"),
		clipper.WithClipSize(200, 200),
		clipper.WithOutlineWidth(24),
	)
	if err != nil {
		return err
	}
	<-s.Ready()
	_ = s.Dispatch(clipper.PointerDown())
	_ = s.Dispatch(clipper.PointerMove(10, 10))
	_ = s.Dispatch(clipper.PointerMove(40, 25))
	_ = s.Dispatch(clipper.Wheel(1))
	if err := s.Confirm(); err != nil {
		return err
	}
	artifact, err := s.Wait(ctx)

The image is always drawn at least as large as the crop window and is never
panned so far that the crop window shows anything but image pixels. The
output of a confirmed session is exactly ClipWidth by ClipHeight pixels.
*/
package clipper
