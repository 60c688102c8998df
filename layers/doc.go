// Package layers models the images of a build description and how each one
// is built.
//
// A Layer is one image. It may be built on top of a base layer, which is
// always built first. Every layer has exactly one build strategy:
//
//   - Dockerfile: `build` of a directory with a Dockerfile
//   - Fields: Dockerfile instructions rendered on top of the base image
//   - Native: an existing image, pulled if missing, or a new name for the base
//   - RootFS: `import` of a root filesystem archive with optional hooks
//   - Vagrant: `commit` of a container provisioned by vagrant
//
// # Named and temporary layers
//
// A layer declared with a repo tag is named. A layer without one is temporary:
// it receives a random repo tag, is never uploaded and is removed by Cleanup
// once it was built.
//
//	drivers := &layers.Drivers{Engine: engine, Runner: runner}
//
//	base, err := layers.NewDockerfile(drivers, layers.Options{RepoTag: "test/base"}, "base/")
//	if err != nil {
//		return err
//	}
//	scratch, err := layers.NewFields(drivers, layers.Options{Base: base}, layers.Fields{
//		Run: []string{"apt-get update"},
//	})
//
// # Build once
//
// Build is memoized per layer: after a successful build the image id is fixed
// and further calls return immediately without touching the engine.
//
// # Collections
//
// A Collection keeps layers in declaration order. NamedLayers walks the
// layer forest depth first from every root and returns the layers that are
// candidates for building and uploading.
package layers
