// Package generation wraps the remote image and video models.
//
// Both adapters return a [media.Result]: an expected failure such as an empty
// generation is reported in Result.Error, while transport faults are returned
// as Go errors. [ImageTool] and [VideoTool] expose the adapters to agents as
// generate_image and generate_video.
package generation
