/*
Package atomicfile writes a file so that readers see either the old
or the new content, never a partially written file.

Data goes to a temporary file in the destination directory. Close
syncs it, renames it over the destination and syncs the directory.
If anything fails, the temporary file is removed and the destination
is left untouched.

	func writeIndex(path string, data []byte) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// Close after Close is a no-op
		defer f.RemoveIfNotClosed()

		if _, err = f.Write(data); err != nil {
			return err
		}
		return f.Close()
	}

WriteFile does the above in one call.
*/
package atomicfile
